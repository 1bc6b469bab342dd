/*
Package staging implements pm's per-install staging directories
(spec.md §4.4): a secure scratch area where one archive is extracted,
validated, and hashed before any of its bytes enter the content store or
a live slot.

Each install operation gets its own directory under staging/, named
<name>-<version>-<uuid> and created mode 0700 so other users on the
host cannot read package contents mid-extraction. A system-wide cap
(Config.MaxStagingDirs) bounds how many of these can exist at once;
beyond the cap, new installs fail fast with a ConcurrencyError rather
than letting staging silently exhaust disk. Manifest parsing and the
four archive-safety checks (file count, cumulative size, path shape,
entry type) live here because they are the staging manager's job to
enforce before pipeline.Extract is allowed to trust what landed on
disk.
*/
package staging
