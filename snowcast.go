// Package snowcast is the core of the Snowcast internet radio server.
// A central server streams song files continuously over UDP while control
// messages (join, tune, announcements, errors) travel over a long-lived TCP
// connection per client. Each station paces its own song at a fixed data
// rate; a single poller multiplexes every control connection and dispatches
// work onto a worker pool.
package snowcast
