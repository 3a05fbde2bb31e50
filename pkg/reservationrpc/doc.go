// Package reservationrpc defines the portwatch.v1.ReservationService gRPC
// contract shared by the server and portwatchctl.
//
// Messages are plain Go structs carried by a JSON codec registered under the
// "json" content subtype (wire content-type application/grpc+json). The
// service descriptor, client stub and registration helper are written by
// hand in the shape protoc-gen-go-grpc produces.
//
// Errors cross the wire as gRPC status codes (see ToStatus and FromStatus):
//
//	conflict    AlreadyExists     held_by and expires_at in an ErrorInfo detail
//	validation  InvalidArgument   field in an ErrorInfo detail
//	not found   NotFound
//	unavailable Unavailable
package reservationrpc
