// Package agent is the facade an LLM runtime talks to. It owns one wallet
// provider and an ordered list of action providers, filters the providers by
// the wallet's network and flattens their actions into a single tool list.
package agent
