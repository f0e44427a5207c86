// Package crawler defines the types, interfaces, and error taxonomy shared by
// the route capture engine: the rendering sessions workers drive, the stores
// artifacts land in, and the summary a run reports.
package crawler
