/*
Package automaton implements character-level Markov chain models: training
from streamed text, weighted random text generation, and a stable JSON
serialization format.

A model is trained once with Train and is read-only from then on. Text is
produced by a Walker, which owns its random source so that any number of
walkers can share one model across goroutines. Generation supports
temperature and top-K sampling and a streaming API for real-time use.

Run ties the pieces together for front ends: it trains or loads a model,
optionally persists it, and generates text in a single call.
*/
package automaton
