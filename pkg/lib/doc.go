// Package lib holds infrastructure helpers with no dependency on the node
// package's own types: currently just log, the slog wrapper internal/kad
// logs through.
package lib
