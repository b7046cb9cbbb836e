/*
Package config loads the snapfs configuration.

Values come from three sources, later ones overriding earlier ones:

	defaults (NewDefault)
	  → YAML file (LoadFromFile)
	    → SNAPFS_* environment variables (LoadFromEnv)
	      → command line flags (applied by cmd/snapfs)

# Example

	global:
	  log_level: info
	  log_format: json
	  metrics_addr: localhost:9100
	namespace:
	  path_template: "[{hostname}]/[{label}]/{time}"
	  time_template: "%Y-%m-%d_%H-%M-%S"
	  symlinks: true
	  filter:
	    hostnames: [laptop]
	    tags: [daily]
	repository:
	  backend: s3
	  cache_size: 512MB
	  s3:
	    bucket: backups
	    prefix: laptop
	    region: eu-central-1
	  retry:
	    max_attempts: 5
	    breaker_threshold: 10
	    breaker_timeout: 1m
	mount:
	  mountpoint: /mnt/snapshots
	  allow_other: true
	webdav:
	  listen: localhost:8000
	  prefix: /snapshots
	bridge:
	  mode: offload
	  workers: 16

Validate compiles the path template, so an unknown placeholder is reported
as CONFIGURATION_ERROR before any adapter starts serving.

# Environment variables

	SNAPFS_LOG_LEVEL, SNAPFS_LOG_FORMAT, SNAPFS_LOG_FILE, SNAPFS_METRICS_ADDR
	SNAPFS_PATH_TEMPLATE, SNAPFS_TIME_TEMPLATE, SNAPFS_SYMLINKS, SNAPFS_SNAPSHOT
	SNAPFS_BACKEND, SNAPFS_REPOSITORY, SNAPFS_CACHE_SIZE, SNAPFS_RETRY_MAX_ATTEMPTS
	SNAPFS_S3_BUCKET, SNAPFS_S3_PREFIX, SNAPFS_S3_REGION, SNAPFS_S3_ENDPOINT,
	SNAPFS_S3_FORCE_PATH_STYLE
	SNAPFS_MOUNTPOINT, SNAPFS_ALLOW_OTHER
	SNAPFS_WEBDAV_LISTEN, SNAPFS_WEBDAV_PREFIX
	SNAPFS_BRIDGE_MODE, SNAPFS_BRIDGE_WORKERS
*/
package config
