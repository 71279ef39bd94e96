/*
Package types defines the VerseGuy entities persisted through pkg/repository.

Every entity embeds Record, which supplies the id, the optimistic-lock
version and the created/updated timestamps, and adds an EntityType method
naming its key namespace:

	User          "user:{id}"
	Organization  "organization:{id}"
	Ship          "ship:{id}"
	Operation     "operation:{id}"

Constructors (NewUser, NewShip, ...) stamp both timestamps with the current
UTC time and leave Version at zero; the first Save makes it 1.

# Migrations

Migrations returns the storage.MigrationManager holding the schema history
for these types:

	1  write store metadata under "meta:store"
	2  trim and lower-case every stored user email

New migrations are appended with the next version number and must be safe
to run against a store that already holds data.
*/
package types
