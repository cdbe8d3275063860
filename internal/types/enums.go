package types

// Step is one of the three sequential exam phases.
type Step string

const (
	StepOne   Step = "STEP_1"
	StepTwo   Step = "STEP_2"
	StepThree Step = "STEP_3"
)

func ValidStep(s Step) bool {
	switch s {
	case StepOne, StepTwo, StepThree:
		return true
	}
	return false
}

// Level is a proficiency label on the A1..C2 competency scale.
// LevelFailLock is the STEP_1 outcome that permanently bars retakes.
type Level string

const (
	LevelA1       Level = "A1"
	LevelA2       Level = "A2"
	LevelB1       Level = "B1"
	LevelB2       Level = "B2"
	LevelC1       Level = "C1"
	LevelC2       Level = "C2"
	LevelFailLock Level = "FAIL_LOCK"
)

var AllLevels = []Level{LevelA1, LevelA2, LevelB1, LevelB2, LevelC1, LevelC2}

type ExamStatus string

const (
	ExamNotStarted ExamStatus = "not_started"
	ExamInProgress ExamStatus = "in_progress"
	ExamCompleted  ExamStatus = "completed"
	ExamLocked     ExamStatus = "locked"
)

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleStudent    Role = "student"
	RoleSupervisor Role = "supervisor"
)
