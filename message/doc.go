// Package message defines the CubeStream wire protocol: the frame layout,
// the event type enumeration, the payload structs for every request, ack
// and stream message, packed tile coordinates, and the sentinel file and
// region id conventions.
//
// # Frame Layout
//
// Every message on the wire is a single WebSocket binary message:
//
//	┌──────────┬────────┬────────────┬──────────────────┐
//	│ EventType│ Flags  │ RequestID  │ Payload (JSON)   │
//	│ uint16 LE│ uint16 │ uint32 LE  │ variable length  │
//	└──────────┴────────┴────────────┴──────────────────┘
//
// The 8-byte header is content-independent: the framer can split a byte
// stream into typed messages without understanding any payload. Payloads
// are JSON documents decoded lazily by the handler for the event type.
//
// # Request/Ack Correlation
//
// Requests carry a client-chosen RequestID; the direct response to a
// request echoes it. Stream messages (tile data, profiles, progress
// events) are pushed with RequestID 0 and correlate by file/region id
// instead.
//
// # Sentinels
//
// Well-known ids are declared as constants rather than scattered magic
// numbers: FileIDAll (-1) in CloseFile closes every open file,
// RegionIDImage (-1) and RegionIDCube (-2) are pseudo-regions covering the
// whole image and the whole cube, RegionIDNew (-1) in SetRegion requests a
// fresh allocation, and derived products (PV images, moment maps) receive
// ids counting down from FileIDPvBase and FileIDMomentBase.
package message
