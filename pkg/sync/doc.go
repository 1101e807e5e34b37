/*
The sync package implements the deploy reconciliation algorithm. It decides
which files in a freshly built site need to be uploaded, which previously
deployed objects can be deleted, and which old objects must be retained even
though the new build no longer references them.

Retention exists because deploys share storage with the builds that came
before them. A browser that loaded an older index.html keeps requesting that
build's content-hashed assets until the user navigates or reloads. Deleting
those assets the moment a new build lands would break every open tab. Each
build publishes a precache manifest listing the hashed files it needs, so the
resolver fetches the most recent manifests still on the remote and keeps
everything they reference alive.

The reconciliation itself is a pure function: given the local snapshot, the
remote listing, and the retention set, it partitions the union of the two key
spaces into upload, delete, and retain sets. Keys that are identical on both
sides appear in none of the three. Execution then uploads everything before
deleting anything, so an interrupted deploy can leave extra objects behind but
never removes an object a served build still needs.

Concurrent deploys to the same target are not coordinated here. Two runs
interleaving against one prefix can delete each other's files; serializing
deploys per target is the caller's responsibility.
*/
package sync
