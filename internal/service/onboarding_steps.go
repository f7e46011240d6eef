package service

// StepKind type for the onboarding step sequence.
type StepKind string

const (
	StepWelcome     StepKind = "welcome"
	StepMethodology StepKind = "methodology"
	StepQuestions   StepKind = "questions"
	StepBasics      StepKind = "basics"
	StepBuild       StepKind = "build"
)

// Informational steps carry no input and auto-advance.
func (k StepKind) Informational() bool {
	return k == StepWelcome || k == StepMethodology
}

// Option is one selectable answer.
type Option struct {
	Value string
	Label string
	None  bool // clears the selection set of a multi-select question
}

// Question is one single- or multi-select sub-question of a questions step.
// ID is the stable identifier encoded into callbacks; Key is the dotted
// answer-document path the response is stored under.
type Question struct {
	ID      string
	Key     string
	Text    string
	Multi   bool
	Options []Option
}

// Field is one free-text numeric input of a basics step.
type Field struct {
	ID   string
	Key  string
	Text string
	Min  float64
	Max  float64
}

// Step is one position in the fixed onboarding sequence.
type Step struct {
	Kind      StepKind
	Text      string
	Questions []Question
	Fields    []Field
}

// onboardingSteps is the fixed step sequence. Cursor positions persisted in
// storage are validated against this slice on every load, so reordering or
// shrinking a step requires care with in-flight states.
var onboardingSteps = []Step{
	{
		Kind: StepWelcome,
		Text: "Welcome! I'm your personal coach. I'll build you a weekly plan across cardio, strength, mindfulness, nutrition and sleep, then adapt it as your week unfolds.",
	},
	{
		Kind: StepMethodology,
		Text: "The method is simple: a large low-intensity cardio base, regular full-body strength work, short mindfulness sessions, and daily nutrition and sleep targets. First, a few questions to calibrate.",
	},
	{
		Kind: StepQuestions,
		Questions: []Question{
			{
				ID:   "cardio_level",
				Key:  "cardio.level",
				Text: "How would you rate your current cardio fitness?",
				Options: []Option{
					{Value: "beginner", Label: "Just starting out"},
					{Value: "intermediate", Label: "I train now and then"},
					{Value: "advanced", Label: "I train consistently"},
				},
			},
			{
				ID:    "cardio_equip",
				Key:   "cardio.equipment",
				Text:  "What cardio equipment can you use? Pick all that apply.",
				Multi: true,
				Options: []Option{
					{Value: "bike", Label: "Bike / trainer"},
					{Value: "treadmill", Label: "Treadmill"},
					{Value: "rower", Label: "Rowing machine"},
					{Value: "outdoors", Label: "Outdoor runs"},
					{Value: "none", Label: "None of these", None: true},
				},
			},
		},
	},
	{
		Kind: StepQuestions,
		Questions: []Question{
			{
				ID:   "str_exp",
				Key:  "strength.experience",
				Text: "How much strength-training experience do you have?",
				Options: []Option{
					{Value: "none", Label: "None yet"},
					{Value: "some", Label: "Under a year"},
					{Value: "experienced", Label: "Over a year"},
				},
			},
			{
				ID:    "str_equip",
				Key:   "strength.equipment",
				Text:  "What strength equipment do you have access to? Pick all that apply.",
				Multi: true,
				Options: []Option{
					{Value: "gym", Label: "Full gym"},
					{Value: "dumbbells", Label: "Dumbbells at home"},
					{Value: "bands", Label: "Resistance bands"},
					{Value: "none", Label: "Bodyweight only", None: true},
				},
			},
		},
	},
	{
		Kind: StepQuestions,
		Questions: []Question{
			{
				ID:   "rec_sleep",
				Key:  "sleep.quality",
				Text: "How's your sleep on a typical week?",
				Options: []Option{
					{Value: "poor", Label: "Poor, I wake up tired"},
					{Value: "fair", Label: "Fair, could be better"},
					{Value: "good", Label: "Good, mostly rested"},
				},
			},
			{
				ID:   "rec_mind",
				Key:  "mindfulness.experience",
				Text: "Have you practiced meditation or breathwork before?",
				Options: []Option{
					{Value: "never", Label: "Never"},
					{Value: "sometimes", Label: "A little"},
					{Value: "regular", Label: "Regularly"},
				},
			},
		},
	},
	{
		Kind: StepBasics,
		Fields: []Field{
			{ID: "age", Key: "basics.age", Text: "How old are you?", Min: 14, Max: 100},
			{ID: "weight", Key: "basics.weightKg", Text: "What's your weight in kg?", Min: 35, Max: 250},
			{ID: "height", Key: "basics.heightCm", Text: "And your height in cm?", Min: 120, Max: 230},
			{ID: "sleep_hours", Key: "basics.sleepHours", Text: "How many hours of sleep do you aim for per night?", Min: 4, Max: 12},
		},
	},
	{
		Kind: StepBuild,
		Text: "That's everything I need. Building your first weekly plan now.",
	},
}
