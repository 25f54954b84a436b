// Package client contains the client-side plumbing around the core offline
// components.
//
// # Overview
//
// The package provides:
//  1. A transport contract (Transport, Pinger) used by the queue gate to
//     deliver operations and to probe connectivity.
//  2. A gRPC implementation (GRPCClient). Operations are sent to
//     casekeeper.v1.OperationService/Apply as google.protobuf.Struct, the
//     access token is attached by an interceptor, and reachability is probed
//     with the standard gRPC health service.
//  3. Local persistence bootstrap (OpenDatabase, RunMigrations, OpenStorage)
//     that wires the configured raw-store driver and applies embedded goose
//     migrations.
//
// # Error Handling
//
// Transport failures are mapped to sentinel errors that callers match with
// errors.Is: ErrUnavailable (retry later), ErrUnauthorized, ErrTokenExpired.
// Anything else means the server rejected the operation.
package client
