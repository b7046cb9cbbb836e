/*
Package adapter wires the configuration to the components that serve a
snapshot namespace.

The Adapter sits between the command line and the protocol adapters:

	┌─────────────────────────────────────────────┐
	│        snapfs mount / snapfs webdav         │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│              ADAPTER LAYER                  │ ← This Package
	│  • Backend selection (local, s3)            │
	│  • Retry and circuit breaker guard          │
	│  • Chunk cache sizing                       │
	│  • Snapshot filtering                       │
	│  • Namespace construction                   │
	└─────────────────────────────────────────────┘
	        │         │          │          │
	┌───────┴───┐ ┌───┴───┐ ┌────┴─────┐ ┌──┴──────┐
	│  Backend  │ │ Cache │ │Repository│ │ Metrics │
	└───────────┘ └───────┘ └──────────┘ └─────────┘

# Lifecycle

New validates the configuration, opens the backend, wraps it in a
storage.Guard built from repository.retry, sizes the chunk cache and opens
the repository. Filesystem lists and filters the snapshots, then
either builds the full namespace from the path template or, when a
SNAPSHOT[:PATH] specifier is configured, roots the namespace at that node.
The returned vfs.Filesystem is what the fuse and webdav packages serve.

Start serves the Prometheus endpoint and /healthz when global.metrics_addr
is set and runs the periodic backend health checks. Stop shuts the endpoint
down.

	a, err := adapter.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Stop(context.Background())

	if err := a.Start(ctx); err != nil {
		return err
	}
	fsys, err := a.Filesystem(ctx, vfs.BridgeOffload)

# Repository locations

ApplyRepositoryURI accepts the forms used by the --repo flag:

	/srv/backups                 local backend
	file:///srv/backups          local backend
	s3://bucket/some/prefix      s3 backend, objects below some/prefix

NewWriter opens the same backends for writing, with the configured chunk
size and compression, for the init and backup commands.
*/
package adapter
