// Package api exposes the auth and directory services over HTTP.
//
// All routes live under a configurable prefix (API_PREFIX, default /api/v1):
//
//	POST   /auth/register               public, admin bearer may assign a role
//	POST   /auth/login                  public, rate limited per client IP
//	POST   /auth/refresh                public
//	POST   /auth/logout                 authenticated, clears the token cookie
//	GET    /users/exists/email/{email}  public
//	GET    /users/exists/code/{code}    public
//	GET    /users/me                    any authenticated caller
//	PUT    /users/me
//	GET    /users?role=&status=&q=&page=&size=
//	GET    /users/stats
//	GET    /users/{id}
//	GET    /users/code/{code}
//	GET    /users/email/{email}
//	GET    /users/role/{role}
//	GET    /users/status/{status}
//	PUT    /users/{id}
//	DELETE /users/{id}                  deactivate
//	POST   /users/{id}/activate
//	DELETE /users/{id}/permanent
//
// Authorization beyond "is authenticated" is decided by the services.
// Errors are rendered as ErrorResponse.
package api
