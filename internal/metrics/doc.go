// Package metrics holds the live host metrics: the latest CPU, memory, disk
// and network samples, a bounded history per metric and the values derived
// from them (trends, load average, threshold alerts).
//
// Samples arrive over the /ws/metrics feed. The feed authenticates with the
// bearer token in its first message, subscribes to the metrics channel and
// then receives one frame per second. Host facts that change rarely (system
// summary, CPU model, memory size) are fetched over REST and cached in the
// preferences file so the header renders before the first fetch completes.
package metrics
