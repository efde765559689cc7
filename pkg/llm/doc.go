// Package llm holds model decorators and the scripted model used for demos
// and tests.
package llm
