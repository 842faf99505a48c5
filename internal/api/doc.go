// Package api exposes the job tree over HTTP.
//
// The Server is a fiber application used by the daemon; the Client is its
// counterpart used by the CLI. Both share the transport DTOs defined in
// types.go. Routes:
//
//	POST /api/jobs/:type   submit a batch (body: request JSON, header X-User)
//	GET  /api/jobs?user=   list a user's batches (add all=true for every node)
//	GET  /api/jobs/:id     one node with its children
//	GET  /api/job-types    registered job types
//	GET  /api/health       preflight results and executor load
package api
