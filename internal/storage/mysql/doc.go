// Package mysql opens pooled MySQL connections and applies the embedded
// schema migrations the invocation store depends on.
package mysql
