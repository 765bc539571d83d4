// Package rpc serves the BambuFarm gRPC service.
//
// The service is defined by a hand-written grpc.ServiceDesc and carries
// JSON-encoded messages under the "json" content-subtype
// (application/grpc+json). It is not wire-compatible with clients that
// send protobuf-encoded messages for the same method names: such calls
// fail with codes.Internal. Clients built with NewClient select the JSON
// codec automatically; other clients must pass
// grpc.CallContentSubtype(CodecName).
//
// Farm errors are mapped to status codes by toStatus. A message sent to a
// session that ends before taking it is reported as Success=false rather
// than an error.
package rpc
