// Package ws streams incident transitions to WebSocket clients.
//
// A client connecting to the hub first receives an "incidents" message with
// every open incident, then one "incident" message per transition for as long
// as it stays connected. Clients that cannot keep up are disconnected.
package ws
