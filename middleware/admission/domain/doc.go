// Package domain defines the contracts and types the admission controller is
// built from: slot pools, tokens, and the connection a long task borrows a
// slot from.
//
// Nothing here depends on net/http, on a concrete pool implementation, or on
// a scheduling runtime. Ports and adapters live in application and infra.
package domain
