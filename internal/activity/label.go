// Package activity defines the recognized activity labels and the
// classification result emitted once per window.
package activity

import "fmt"

// Label is one member of the closed activity enumeration.
type Label string

const (
	Unknown         Label = "unknown"
	Standing        Label = "standing"
	Sitting         Label = "sitting"
	TalkingSitting  Label = "talking_sitting"
	TalkingStanding Label = "talking_standing"
	SitStand        Label = "sit_stand" // standing up and sitting down
	Lying           Label = "lying"
	LieStand        Label = "lie_stand" // lying down and getting up
	PickingObject   Label = "picking_object"
	Jumping         Label = "jumping"
	PushUp          Label = "push_up"
	SitUp           Label = "sit_up"
	Walking         Label = "walking"
	WalkingBackward Label = "walking_backward"
	WalkingCircle   Label = "walking_circle"
	Running         Label = "running"
	StairsUp        Label = "stairs_up"
	StairsDown      Label = "stairs_down"
	PingPong        Label = "ping_pong"
)

// LabelSet maps a model's raw class index to a Label.
type LabelSet struct {
	name   string
	labels map[int]Label
}

// LabelSet11 is the 11-class model output, indices 0..10.
var LabelSet11 = LabelSet{
	name: "11",
	labels: map[int]Label{
		0:  Standing,
		1:  Sitting,
		2:  TalkingSitting,
		3:  SitStand,
		4:  Lying,
		5:  PickingObject,
		6:  Jumping,
		7:  Walking,
		8:  WalkingBackward,
		9:  WalkingCircle,
		10: Running,
	},
}

// LabelSet19 is the 19-output model: index 0 is the model's own unknown
// class and indices 1..18 are activities.
var LabelSet19 = LabelSet{
	name: "19",
	labels: map[int]Label{
		1:  Standing,
		2:  Sitting,
		3:  TalkingSitting,
		4:  TalkingStanding,
		5:  SitStand,
		6:  Lying,
		7:  LieStand,
		8:  PickingObject,
		9:  Jumping,
		10: PushUp,
		11: SitUp,
		12: Walking,
		13: WalkingBackward,
		14: WalkingCircle,
		15: Running,
		16: StairsUp,
		17: StairsDown,
		18: PingPong,
	},
}

// LabelSetFor returns the label set for a configured class count.
func LabelSetFor(classes int) (LabelSet, error) {
	switch classes {
	case 11:
		return LabelSet11, nil
	case 19:
		return LabelSet19, nil
	}
	return LabelSet{}, fmt.Errorf("no label set with %d classes", classes)
}

// Name identifies the set ("11" or "19").
func (s LabelSet) Name() string { return s.name }

// Lookup maps a raw index. Indices outside the set map to Unknown with
// ok=false.
func (s LabelSet) Lookup(index int) (Label, bool) {
	l, ok := s.labels[index]
	if !ok {
		return Unknown, false
	}
	return l, true
}

// Len is the number of activity labels in the set, Unknown excluded.
func (s LabelSet) Len() int { return len(s.labels) }
