// Package cli implements the connect command line tool, a thin cobra front
// end over the subscriptions and tenantusers clients.
//
// Every command talks to a running API server (--api, CONNECT_API_URL) with
// a session id (--session, CONNECT_SESSION). Tenant scoped commands also need
// --tenant or CONNECT_TENANT. Output is a table by default and indented JSON
// with --json.
//
//	connect login --user admin-1
//	connect plans list
//	connect subscription checkout --tenant school-1 --plan standard --quantity 12
//	connect users list --tenant school-1 --role TEACHER
//	connect invitations invite --tenant school-1 --email a@b.com --name "A B"
package cli
