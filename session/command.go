package session

// Command is a user request to a running session.
type Command int

const (
	// CommandAccept stores the current detection as an observation.
	CommandAccept Command = iota
	// CommandSave writes the camera model to the calibration file.
	CommandSave
	// CommandLoad reads the camera model from the calibration file.
	CommandLoad
	// CommandToggleShape switches the overlay shape.
	CommandToggleShape
	// CommandQuit ends the frame loop.
	CommandQuit
)

func (c Command) String() string {
	switch c {
	case CommandAccept:
		return "accept"
	case CommandSave:
		return "save"
	case CommandLoad:
		return "load"
	case CommandToggleShape:
		return "toggle_shape"
	case CommandQuit:
		return "quit"
	default:
		return "unknown"
	}
}
