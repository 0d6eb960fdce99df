package synccommittee

import "errors"

// Sync engine failure modes.
var (
	ErrInvalidBranch             = errors.New("synccommittee: branch length is neither Deneb (10) nor Electra (11)")
	ErrInvalidSignature          = errors.New("synccommittee: aggregate BLS signature check failed")
	ErrInsufficientParticipation = errors.New("synccommittee: participation below 2/3 of 512 seats")
	ErrWrongDomain               = errors.New("synccommittee: signature domain is not DOMAIN_SYNC_COMMITTEE")
	ErrChainBroken               = errors.New("synccommittee: key continuity violated across aggregated proofs")
	ErrPeriodMismatch            = errors.New("synccommittee: period arithmetic violates the slot>>13 invariant")
	ErrNoSnapshot                = errors.New("synccommittee: no snapshot stored for chain, needs bootstrap")
	ErrBootstrapMismatch         = errors.New("synccommittee: bootstrap header root does not match trusted anchor")
	ErrCommitteeRootMismatch     = errors.New("synccommittee: recomputed committee root does not match update")
	ErrStateRootMismatch         = errors.New("synccommittee: claimed state root does not match header")
)
