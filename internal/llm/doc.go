// Package llm adapts agent actions to the function-calling format used by
// chat completion APIs: tool descriptors going out, tool calls coming back.
package llm
