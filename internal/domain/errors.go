package domain

import "errors"

// Profile errors
var (
	ErrProfileNotFound     = errors.New("profile not found")
	ErrInvalidUsername     = errors.New("username must be 3-30 characters of letters, numbers or underscores")
	ErrUsernameTaken       = errors.New("username is already taken")
	ErrBioTooLong          = errors.New("bio must be at most 300 characters")
	ErrUnsupportedPhoto    = errors.New("photo must be a jpeg, png or webp image")
	ErrPhotoTooLarge       = errors.New("photo must be at most 5MB")
	ErrOnboardingRequired  = errors.New("complete onboarding first")
	ErrStorageNotAvailable = errors.New("photo storage is not configured")
)

// Room errors
var (
	ErrRoomNotFound         = errors.New("room not found")
	ErrNotRoomHost          = errors.New("only the room host can perform this action")
	ErrNotRoomMember        = errors.New("you are not a member of this room")
	ErrHostCannotLeave      = errors.New("the host cannot leave the room")
	ErrInvalidRoomState     = errors.New("invalid room state for this action")
	ErrInvalidTransition    = errors.New("invalid room status transition")
	ErrCodeGenerationFailed = errors.New("could not generate a unique room code")
	ErrInvalidTimer         = errors.New("timer must be between 1 and 60 minutes")
	ErrInvalidRoomName      = errors.New("room name must be 1-60 characters")
	ErrInvalidRoomMode      = errors.New("invalid room mode")
)

// Invitation errors
var (
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrAlreadyInvited     = errors.New("user already has a pending invitation to this room")
	ErrAlreadyMember      = errors.New("user is already a member of this room")
	ErrCannotInviteSelf   = errors.New("you cannot invite yourself")
	ErrInvitationClosed   = errors.New("invitation has already been answered")
)

// Coffee and set errors
var (
	ErrCoffeeNotFound     = errors.New("coffee not found")
	ErrCoffeeInUse        = errors.New("coffee is used by a set")
	ErrTooManyCoffees     = errors.New("a room can hold at most 26 coffees")
	ErrInvalidCoffeeName  = errors.New("coffee name must be 1-80 characters")
	ErrNotEnoughCoffees   = errors.New("at least 2 coffees are required")
	ErrSetNotFound        = errors.New("set not found")
	ErrInvalidSetRows     = errors.New("a set must have exactly 8 rows numbered 1-8")
	ErrPairEqualsOdd      = errors.New("pair coffee and odd coffee must differ")
	ErrInvalidOddPosition = errors.New("odd cup position must be 1, 2 or 3")
	ErrCoffeeNotInRoom    = errors.New("coffee does not belong to this room")
	ErrSetRowNotFound     = errors.New("set row not found")
	ErrSetInUse           = errors.New("set has already been played")
)

// Game errors
var (
	ErrSessionNotFound  = errors.New("game session not found")
	ErrRoundNotFound    = errors.New("round not found")
	ErrRoundClosed      = errors.New("round has already ended")
	ErrRoundNotRevealed = errors.New("round results are not revealed yet")
	ErrNotParticipant   = errors.New("you are not a participant of this round")
	ErrAlreadySubmitted = errors.New("answers already submitted for this round")
	ErrInvalidAnswers   = errors.New("answers must cover rows 1-8 with positions 1-3")
	ErrWrongRoomMode    = errors.New("operation not available for this room mode")
)

// Cupping errors
var (
	ErrCuppingSessionNotFound = errors.New("cupping session not found")
	ErrSampleNotFound         = errors.New("sample not found")
	ErrInvalidFormType        = errors.New("form type must be sca or simple")
	ErrInvalidScore           = errors.New("score is outside the allowed range")
	ErrScoreAlreadySubmitted  = errors.New("score already submitted for this sample")
	ErrCuppingSessionClosed   = errors.New("cupping session is completed")
	ErrInvalidSampleName      = errors.New("sample name must be 1-80 characters")
)

// Auth errors
var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)
