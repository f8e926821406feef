/*
Package gqlcache implements a normalized in-memory cache of GraphQL
operation results.

We implement:

1. Trees, the indexed form of one operation's result. Results are kept as
written; every object with an identity (a node) is indexed by its key, so
trees of different operations that share entities can be kept consistent.

2. Writes. A new result is diffed against every chunk of the same entities
already in the cache, and every other tree that references a changed entity
is updated copy-on-write: unchanged objects and lists keep their identity, so
callers can compare results by reference.

3. Optimistic layers, holding writes made ahead of server confirmation. Each
layer records the writes made to it and is rebuilt from them when a layer
below it goes away or when confirmed data below it changes.

4. Transactions (Batch), which nest, roll back on error or panic, and
notify watchers once, when the outermost transaction finishes.

5. Eviction of least recently used trees, per partition.

# Technical Details

**Keys.**
Operation keys combine the document id, the root entity and the canonical
JSON of the variables. Node keys come from Options.KeyFunc, by default
`Type:id`. Field keys are the field name, plus canonical JSON arguments for
fields with arguments, so aliases of the same logical field compare equal.

**Chunks.**
A chunk is an object or list value viewed through the selection of one
operation. The same entity has one chunk per place it occurs in each tree.
Reading a field of an entity consults all of its chunks.

**Layers.**
Reads see optimistic layers topmost first, then the confirmed forest. A
tree in a higher layer shadows the tree of the same operation below it.

**Recycling.**
When a tree is rebuilt from a partially copied result, chunks whose raw map
or slice is the very same value are reused, which keeps rebuilding cost
proportional to what changed.
*/
package gqlcache
