// Package domain defines the camp catalog and planner value types shared by
// every camp planner component.
//
// Types here are plain values. Catalog records are read-only once published
// in a snapshot; user records are owned by the user state aggregator and the
// planner.
package domain
