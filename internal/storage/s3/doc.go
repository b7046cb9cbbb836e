/*
Package s3 stores repository objects in an S3 bucket.

The backend maps every repository key onto an object key below an optional
prefix, so several repositories can share a bucket:

	s3://bucket/<prefix>/config
	s3://bucket/<prefix>/snapshots/<id>
	s3://bucket/<prefix>/trees/<id>
	s3://bucket/<prefix>/data/<id>

Any S3-compatible service works. Set Endpoint and ForcePathStyle for MinIO
or Ceph RGW; leave the credentials empty to use the default AWS credential
chain (environment, shared config, instance role).

# Usage

	backend, err := s3.NewBackend(ctx, &s3.Config{
		Bucket: "backups",
		Prefix: "laptop",
		Region: "eu-central-1",
	})
	if err != nil {
		return err
	}
	repo, err := repository.Open(ctx, backend, repository.Options{})

Missing objects are reported with errors wrapping fs.ErrNotExist, which
the repository layer turns into NOT_FOUND.

Reads use ranged GETs when an offset or size is given. Listing follows
ListObjectsV2 continuation tokens until the limit is reached or the prefix
is exhausted.
*/
package s3
