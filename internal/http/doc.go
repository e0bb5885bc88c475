// Package httpapp provides the HTTP API for truthtally.
//
// Write operations need a bearer token from POST /api/auth/login, sent as
//
//	Authorization: Bearer <token>
//
// Routes:
//
//	POST   /api/auth/register                 create an account (role user)
//	POST   /api/auth/login                    exchange credentials for a token
//	POST   /api/auth/logout                   revoke the presented token
//	GET    /api/auth/me                       identity behind the token
//
//	GET    /api/politicians                   list live politicians
//	POST   /api/politicians                   create a politician
//	GET    /api/politicians/{id}              fetch one
//	PATCH  /api/politicians/{id}              partial update (mod, admin)
//	DELETE /api/politicians/{id}              admin deletes, mod requests deletion
//	PATCH  /api/politicians/{id}/approve-delete
//	GET    /api/politicians/{id}/statements   live statements of one politician
//
//	GET    /api/statements[?politicianId=]    list live statements with tallies
//	POST   /api/statements                    submit a statement
//	GET    /api/statements/{id}               fetch one with tallies
//	DELETE /api/statements/{id}               admin deletes, owner or mod requests
//	PATCH  /api/statements/{id}/status        adjudicate (mod, admin)
//	POST   /api/statements/{id}/vote          cast +1 or -1
//	PATCH  /api/statements/{id}/approve-delete
//
//	GET    /api/moderation/flagged            flagged statements (mod, admin)
//	GET    /api/moderation/pending            pending delete requests (mod, admin)
//	GET    /api/audit/{entityType}/{id}       edit log of one entity (mod, admin)
//	GET    /api/stats                         site counters
//
//	GET    /healthz
//	GET    /metrics                           Prometheus exposition
//
// Errors are JSON objects with statusCode, timestamp, path and error fields.
// Authorization failures also carry a reason; rate-limited responses carry
// retryAfter and a Retry-After header.
package httpapp
