/*
Package hash computes the content hashes that identify every object in
pm's store (spec.md §3).

A Hash is a 256-bit BLAKE3 digest, rendered as 64 lowercase hex
characters. Two hashes are equal exactly when the byte streams that
produced them are equal; a Hash is immutable once computed and carries
no path or metadata of its own.

FileHasher extends that to whole trees: directories hash to the digest
of an empty byte stream, symlinks hash the text of their target path
rather than the bytes they point to, and regular files are streamed
through BLAKE3 without loading them whole into memory. HashDirectory
walks a tree with bounded concurrency, mirroring the store's other
bulk operations (§3: "implementations MAY parallelize per-file hashing").
*/
package hash
