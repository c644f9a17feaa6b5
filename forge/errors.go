package forge

import (
	"errors"
	"fmt"
	"strings"

	"github.com/heroiclabs/nakama-common/runtime"
)

var (
	ErrNodeNotFound      = runtime.NewError("unlock node not found", NOT_FOUND_ERROR_CODE)        // NOT_FOUND
	ErrItemNotFound      = runtime.NewError("recipe item not found", NOT_FOUND_ERROR_CODE)        // NOT_FOUND
	ErrQuestLineNotFound = runtime.NewError("quest line not found", NOT_FOUND_ERROR_CODE)         // NOT_FOUND
	ErrUpgradeNotFound   = runtime.NewError("upgrade not found", NOT_FOUND_ERROR_CODE)            // NOT_FOUND
	ErrSaveNotFound      = runtime.NewError("save slot not found", NOT_FOUND_ERROR_CODE)          // NOT_FOUND
	ErrAlreadyUnlocked   = runtime.NewError("node already unlocked", INVALID_ARGUMENT_ERROR_CODE) // INVALID_ARGUMENT
	ErrInvalidGameData   = runtime.NewError("invalid game data", INVALID_ARGUMENT_ERROR_CODE)     // INVALID_ARGUMENT

	ErrPrerequisitesMissing  = runtime.NewError("prerequisites missing", FAILED_PRECONDITION_ERROR_CODE)    // FAILED_PRECONDITION
	ErrInsufficientResources = runtime.NewError("insufficient resources", FAILED_PRECONDITION_ERROR_CODE)   // FAILED_PRECONDITION
	ErrCategoryLocked        = runtime.NewError("recipe category locked", FAILED_PRECONDITION_ERROR_CODE)   // FAILED_PRECONDITION
	ErrRecipeLocked          = runtime.NewError("recipe locked", FAILED_PRECONDITION_ERROR_CODE)            // FAILED_PRECONDITION
	ErrUpgradeLocked         = runtime.NewError("upgrade locked", FAILED_PRECONDITION_ERROR_CODE)           // FAILED_PRECONDITION
	ErrUpgradeMaxed          = runtime.NewError("upgrade at maximum level", FAILED_PRECONDITION_ERROR_CODE) // FAILED_PRECONDITION
)

// NotFoundKind names the kind of data a NotFoundError refers to.
type NotFoundKind string

const (
	NotFoundNode      NotFoundKind = "node"
	NotFoundCategory  NotFoundKind = "category"
	NotFoundItem      NotFoundKind = "item"
	NotFoundQuestLine NotFoundKind = "quest line"
	NotFoundUpgrade   NotFoundKind = "upgrade"
)

// NotFoundError reports an id missing from the loaded game data, with close
// matches the UI can offer instead.
type NotFoundError struct {
	Kind        NotFoundKind
	ID          string
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("%s %q not found", e.Kind, e.ID)
	if len(e.Suggestions) > 0 {
		msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(e.Suggestions, ", "))
	}
	return msg
}

func (e *NotFoundError) Unwrap() error {
	switch e.Kind {
	case NotFoundNode:
		return ErrNodeNotFound
	case NotFoundQuestLine:
		return ErrQuestLineNotFound
	case NotFoundUpgrade:
		return ErrUpgradeNotFound
	default:
		return ErrItemNotFound
	}
}

// PrerequisitesMissingError carries every unmet prerequisite of a node, in
// declaration order.
type PrerequisitesMissingError struct {
	NodeID  string
	Missing []string
}

func (e *PrerequisitesMissingError) Error() string {
	return fmt.Sprintf("node %q is missing prerequisites: %s", e.NodeID, strings.Join(e.Missing, ", "))
}

func (e *PrerequisitesMissingError) Unwrap() error {
	return ErrPrerequisitesMissing
}

// Shortfall is one resource a cost asks for more of than the ledger holds.
type Shortfall struct {
	Resource string `json:"resource"`
	Needed   uint64 `json:"needed"`
	Have     uint64 `json:"have"`
}

// Missing is how many more units are required.
func (s Shortfall) Missing() uint64 {
	if s.Have >= s.Needed {
		return 0
	}
	return s.Needed - s.Have
}

// InsufficientResourcesError carries the per-resource breakdown of an
// unaffordable cost.
type InsufficientResourcesError struct {
	Shortfalls []Shortfall
}

func (e *InsufficientResourcesError) Error() string {
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		parts = append(parts, fmt.Sprintf("%d more %s", s.Missing(), s.Resource))
	}
	return "insufficient resources: need " + strings.Join(parts, ", ")
}

func (e *InsufficientResourcesError) Unwrap() error {
	return ErrInsufficientResources
}

// IsInformational reports whether err is an idempotent re-request the UI
// should not alarm on.
func IsInformational(err error) bool {
	return errors.Is(err, ErrAlreadyUnlocked)
}

// ErrorCode maps an engine error onto its runtime error code.
func ErrorCode(err error) int {
	if err == nil {
		return 0
	}
	var rerr *runtime.Error
	if errors.As(err, &rerr) {
		return rerr.Code
	}
	return INTERNAL_ERROR_CODE
}

// toRuntimeError keeps the detail message of typed errors while exposing the
// code Nakama clients expect.
func toRuntimeError(err error) error {
	if err == nil {
		return nil
	}
	var rerr *runtime.Error
	if errors.As(err, &rerr) && rerr == err {
		return err
	}
	return runtime.NewError(err.Error(), ErrorCode(err))
}
