// Package intake turns one submitted customer service request form into a
// stored request record.
//
// A submission moves through explicit states:
//
//	Received -> Validating -> Rejected (missing required field)
//	                       -> AttachmentPending -> Rejected (extension not allowed)
//	                                            -> AttachmentStored | AttachmentSkipped
//	                       -> AttachmentSkipped (no file)
//	AttachmentStored | AttachmentSkipped -> Committing -> Committed | RolledBack
//
// Rejected, Committed and RolledBack are terminal. On RolledBack any
// attachment written for the submission has been removed again.
package intake
