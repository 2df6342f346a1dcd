// Package access decides which caller may perform which operation on an
// identity record.
//
// Decisions come from an ordered rule table evaluated top to bottom; the
// first rule that matches decides and an unmatched request is denied.
// Evaluation is pure: it reads only the Caller, the Operation and the Target
// handed in, so the same inputs always produce the same Decision.
//
//	if err := access.Authorize(caller, access.OpReadByCode, access.TargetOf(user)); err != nil {
//		return err // FORBIDDEN
//	}
package access
