package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrSessionActive      ErrCode = "SESSION_ALREADY_ACTIVE"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden       ErrCode = "FORBIDDEN"
	ErrCandidateOnly   ErrCode = "CANDIDATE_ACCESS_ONLY"
	ErrAdminAccessOnly ErrCode = "ADMIN_ACCESS_ONLY"
	ErrUnlockDenied    ErrCode = "UNLOCK_DENIED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Exam-specific ─────────────────────────────────────────────────
	ErrAlreadyAttempted ErrCode = "ALREADY_ATTEMPTED"
	ErrResumeLimit      ErrCode = "RESUME_LIMIT_REACHED"
	ErrExamLocked       ErrCode = "EXAM_LOCKED"
	ErrExamNotLocked    ErrCode = "EXAM_NOT_LOCKED"
	ErrExamSubmitted    ErrCode = "EXAM_SUBMITTED"
	ErrExamTimeOver     ErrCode = "EXAM_TIME_OVER"
	ErrNoQuestions      ErrCode = "NO_QUESTIONS"
	ErrNoActiveSession  ErrCode = "NO_ACTIVE_SESSION"
	ErrResultsLocked    ErrCode = "RESULTS_UNREADABLE"
	ErrMonitorDegraded  ErrCode = "MONITOR_UNAVAILABLE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Wrong username or password."
	case ErrSessionActive:
		return "You are already logged in on another device."
	case ErrSessionInvalidated:
		return "Your login has ended. Please log in again."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is not valid."
	case ErrTokenExpired:
		return "The authentication token has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrCandidateOnly:
		return "This resource is restricted to exam candidates."
	case ErrAdminAccessOnly:
		return "This resource is restricted to administrators."
	case ErrUnlockDenied:
		return "The unlock password was not accepted."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "The id format is not valid."
	case ErrInvalidPayload:
		return "The request payload is not valid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "The resource was not found."
	case ErrConflict:
		return "The resource already exists."

	// ─── Exam-specific ─────────────────────────────────────────────────
	case ErrAlreadyAttempted:
		return "You have already completed this exam."
	case ErrResumeLimit:
		return "You have used all your resume attempts. Contact the invigilator."
	case ErrExamLocked:
		return "Your exam is locked. Ask the invigilator to unlock it."
	case ErrExamNotLocked:
		return "Your exam is not locked."
	case ErrExamSubmitted:
		return "Your exam has already been submitted."
	case ErrExamTimeOver:
		return "The exam time is over."
	case ErrNoQuestions:
		return "No questions are available for this exam."
	case ErrNoActiveSession:
		return "You have no exam in progress."
	case ErrResultsLocked:
		return "The stored results could not be decrypted."
	case ErrMonitorDegraded:
		return "The session monitor is temporarily unavailable. Try again."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
