// Package s3 implements an adapter.Adapter backed by an Amazon S3
// bucket, using the aws-sdk-go v1 client.
package s3

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/libreary/libreary"
	"github.com/libreary/libreary/adapter"
	"github.com/libreary/libreary/adapter/base"
	"github.com/libreary/libreary/adapter/factory"
)

const typeName = "s3"

// s3StorageClasses lists the storage classes this adapter accepts in
// its "storage_class" configuration parameter.
var s3StorageClasses = []string{
	s3.StorageClassStandard,
	s3.StorageClassReducedRedundancy,
	s3.StorageClassStandardIa,
	s3.StorageClassOnezoneIa,
	s3.StorageClassIntelligentTiering,
	s3.StorageClassGlacierIr,
}

func init() {
	factory.Register(typeName, driverFactory{})
}

type driverFactory struct{}

func (driverFactory) Create(ctx context.Context, id string, params map[string]interface{}) (adapter.Adapter, error) {
	return FromParameters(id, params)
}

// DriverParameters are the configuration fields this adapter accepts.
type DriverParameters struct {
	AccessKey     string
	SecretKey     string
	Bucket        string
	Region        string
	RootDirectory string
	StorageClass  string
}

type baseEmbed struct {
	base.Base
}

// Adapter stores resources as objects in an S3 bucket, keyed under an
// optional root prefix.
type Adapter struct {
	baseEmbed
}

type driver struct {
	id            string
	client        *s3.S3
	bucket        string
	rootDirectory string
	storageClass  string
}

// FromParameters validates params and constructs an S3-backed adapter.
func FromParameters(id string, params map[string]interface{}) (*Adapter, error) {
	bucket, _ := params["bucket_name"].(string)
	if bucket == "" {
		return nil, fmt.Errorf("s3 adapter %q: missing required parameter %q", id, "bucket_name")
	}
	region, _ := params["region"].(string)
	if region == "" {
		return nil, fmt.Errorf("s3 adapter %q: missing required parameter %q", id, "region")
	}

	accessKey, _ := params["access_key"].(string)
	secretKey, _ := params["secret_key"].(string)
	rootDirectory, _ := params["root_directory"].(string)

	storageClass := s3.StorageClassStandard
	if v, ok := params["storage_class"].(string); ok && v != "" {
		if !contains(s3StorageClasses, v) {
			return nil, fmt.Errorf("s3 adapter %q: invalid storage_class %q", id, v)
		}
		storageClass = v
	}

	cfg := aws.NewConfig().WithRegion(region)
	if accessKey != "" && secretKey != "" {
		cfg = cfg.WithCredentials(credentials.NewStaticCredentials(accessKey, secretKey, ""))
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("s3 adapter %q: failed to create session: %w", id, err)
	}

	return New(id, s3.New(sess), bucket, rootDirectory, storageClass), nil
}

// New constructs an Adapter from an already-configured S3 client,
// primarily for testing against an S3-compatible endpoint.
func New(id string, client *s3.S3, bucket, rootDirectory, storageClass string) *Adapter {
	return &Adapter{baseEmbed{base.New(&driver{
		id:            id,
		client:        client,
		bucket:        bucket,
		rootDirectory: rootDirectory,
		storageClass:  storageClass,
	})}}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func (d *driver) ID() string   { return d.id }
func (d *driver) Type() string { return typeName }

// CanOverwrite is true: PutObject replaces an existing key's content.
func (d *driver) CanOverwrite() bool { return true }

func (d *driver) key(resourceUUID, filename string, canonical bool) string {
	name := fmt.Sprintf("%s_%s", resourceUUID, filename)
	if canonical {
		name = fmt.Sprintf("canonical_%s_%s", resourceUUID, filename)
	}
	return path.Join(d.rootDirectory, name)
}

// findKey searches for an existing object whose key carries the given
// resource UUID, since the filename component isn't known at retrieve
// or delete time.
func (d *driver) findKey(ctx context.Context, resourceUUID string, canonical bool) (string, error) {
	prefix := resourceUUID + "_"
	if canonical {
		prefix = "canonical_" + resourceUUID + "_"
	}
	prefix = path.Join(d.rootDirectory, prefix)

	out, err := d.client.ListObjectsWithContext(ctx, &s3.ListObjectsInput{
		Bucket: aws.String(d.bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return "", err
	}
	if len(out.Contents) == 0 {
		return "", nil
	}
	return aws.StringValue(out.Contents[0].Key), nil
}

func (d *driver) store(ctx context.Context, resourceUUID, sourcePath, checksum, filename string, canonical bool) (string, error) {
	existing, err := d.findKey(ctx, resourceUUID, canonical)
	if err != nil {
		return "", err
	}
	if existing != "" {
		if canonical {
			return "", libreary.StorageFailedError{
				ResourceUUID: resourceUUID,
				AdapterID:    d.id,
				Reason:       "a canonical copy already exists on this adapter",
			}
		}
		// A non-canonical copy already exists. If its bytes already match
		// the checksum being stored, this call is a no-op duplicate. If
		// they don't, the existing copy is corrupt and this call is a
		// repair: fall through and overwrite the key in place.
		if existingSum, err := d.hashKey(ctx, existing); err == nil && existingSum == checksum {
			return existing, nil
		}
	}

	f, err := os.Open(sourcePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	actual := hex.EncodeToString(h.Sum(nil))
	if actual != checksum {
		return "", libreary.ChecksumMismatchError{
			ResourceUUID: resourceUUID,
			AdapterID:    d.id,
			Expected:     checksum,
			Actual:       actual,
		}
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	body, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}

	key := d.key(resourceUUID, filename, canonical)
	_, err = d.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(d.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(body),
		StorageClass: aws.String(d.storageClass),
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

func (d *driver) Store(ctx context.Context, resourceUUID, sourcePath, checksum, filename string) (string, error) {
	return d.store(ctx, resourceUUID, sourcePath, checksum, filename, false)
}

func (d *driver) StoreCanonical(ctx context.Context, resourceUUID, sourcePath, checksum, filename string) (string, error) {
	return d.store(ctx, resourceUUID, sourcePath, checksum, filename, true)
}

func (d *driver) Retrieve(ctx context.Context, resourceUUID, destPath string, canonical bool) error {
	key, err := d.findKey(ctx, resourceUUID, canonical)
	if err != nil {
		return err
	}
	if key == "" {
		return libreary.NoCopyExistsError{ResourceUUID: resourceUUID, AdapterID: d.id}
	}

	out, err := d.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return err
	}
	defer out.Body.Close()

	f, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o666)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(f, out.Body)
	return err
}

// hashKey fetches the object at key and returns its SHA-1, used to tell
// a genuine duplicate Store apart from a repair overwrite.
func (d *driver) hashKey(ctx context.Context, key string) (string, error) {
	out, err := d.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", err
	}
	defer out.Body.Close()

	h := sha1.New()
	if _, err := io.Copy(h, out.Body); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (d *driver) delete(ctx context.Context, resourceUUID string, canonical bool) error {
	key, err := d.findKey(ctx, resourceUUID, canonical)
	if err != nil {
		return err
	}
	if key == "" {
		return nil
	}
	_, err = d.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	return err
}

func (d *driver) Delete(ctx context.Context, resourceUUID string) error {
	return d.delete(ctx, resourceUUID, false)
}

func (d *driver) DeleteCanonical(ctx context.Context, resourceUUID string) error {
	return d.delete(ctx, resourceUUID, true)
}

func (d *driver) ActualChecksum(ctx context.Context, resourceUUID string, canonical bool) (string, error) {
	key, err := d.findKey(ctx, resourceUUID, canonical)
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", libreary.NoCopyExistsError{ResourceUUID: resourceUUID, AdapterID: d.id}
	}

	out, err := d.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if awsErr, ok := err.(awserr.Error); ok && awsErr.Code() == s3.ErrCodeNoSuchKey {
			return "", libreary.NoCopyExistsError{ResourceUUID: resourceUUID, AdapterID: d.id}
		}
		return "", err
	}
	defer out.Body.Close()

	h := sha1.New()
	if _, err := io.Copy(h, out.Body); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
