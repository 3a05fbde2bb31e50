// Package auth guards the gRPC and HTTP façades with a shared API key and
// lifts the caller's operator name into the request context.
//
// When mode != "apikey" or the key is empty every call passes (local
// development). A missing or wrong key yields codes.Unauthenticated on gRPC
// and 401 on HTTP. The operator name is read from the x-operator header or
// metadata key and is advisory only; it is not an identity check.
package auth
