// Package ws pushes the portfolio board to dashboards over WebSocket.
//
// Hub.Run(ctx) broadcasts a fresh snapshot every interval until ctx is
// cancelled, then closes all connections. Hub.ServeHTTP upgrades a request,
// sends the current snapshot immediately and streams updates afterwards.
//
// Message format sent to clients:
//
//	{
//	  "event": "snapshot",
//	  "data":  { /* same schema as GET /api/v1/snapshot */ }
//	}
//
// The upgrader accepts all origins; restrict them at the reverse proxy. The
// server mounts the hub at /ws/stream.
package ws
