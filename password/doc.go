// Package password implements argon2id hashing and the password strength
// policy.
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Hasher.NeedsUpgrade] reports hashes produced with weaker parameters so the
// caller can re-hash on the next successful login. The same hasher protects
// short numeric codes and reset secrets, so it never rejects input by length;
// [Strong] is the policy check for user-chosen passwords.
package password
