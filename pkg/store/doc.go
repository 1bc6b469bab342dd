/*
Package store implements pm's content-addressed object store
(spec.md §4.1): persistent, deduplicated byte storage keyed by BLAKE3
hash, rooted at a store directory laid out as

	store/
	  objects/<hh>/<hash>   content, mode 0444, two-level sharded
	  tmp/                  scratch files during AddBytes
	  quarantine/           objects Guard has flagged as corrupt

Every object's path is immutable for the life of the object: AddBytes
streams to a temp file, hashes on the fly, and renames into place, so
Contains(h) is true the instant the rename's fsync has landed, even
across a crash. LinkInto materialises an object at a destination path
by the cheapest method APFS offers: clonefile reflink, then hardlink,
then a full copy, falling back only as far as the destination's
permission requirements force it.
*/
package store
