// Package middleware provides the HTTP middleware chain shared by all
// gateway routes: request id generation, panic recovery, structured
// request logging, bearer-token authentication, and relay shared-secret
// verification for the gateway-to-gateway hop.
package middleware
