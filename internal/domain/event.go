package domain

// AccessEvent mirrors the vendor's nested event document. Only the fields the
// bridge reads are modelled; unknown fields are dropped on decode, which is
// safe because the full batch payload is persisted before any filtering.
type AccessEvent struct {
	BasicInfo *EventBasicInfo `json:"basicInfo,omitempty"`
	Data      *EventData      `json:"data,omitempty"`
}

type EventBasicInfo struct {
	Device    *EventDevice `json:"device,omitempty"`
	MsgType   int          `json:"msgType,omitempty"`
	OccurTime string       `json:"occurTime,omitempty"`
}

type EventDevice struct {
	ID string `json:"id,omitempty"`
}

type EventData struct {
	OpenDoorInfo *OpenDoorInfo `json:"openDoorInfo,omitempty"`
}

type OpenDoorInfo struct {
	Event *DoorEvent `json:"event,omitempty"`
}

type DoorEvent struct {
	BasicInfo   *EventBasicInfo `json:"basicInfo,omitempty"`
	IntelliInfo *IntelliInfo    `json:"intelliInfo,omitempty"`
}

// IntelliInfo carries the recognition verdict of a door event.
// AuthResult 1 means the person was successfully authenticated;
// AttendanceStatus 1 and 2 are check-in and check-out.
type IntelliInfo struct {
	PersonID         string `json:"personId,omitempty"`
	AttendanceStatus int    `json:"attendanceStatus,omitempty"`
	AuthResult       int    `json:"authResult,omitempty"`
}

const (
	authResultSuccess  = 1
	attendanceCheckIn  = 1
	attendanceCheckOut = 2
)

// ForwardableEvent is the flattened attendance record forwarded downstream.
type ForwardableEvent struct {
	DeviceID         string `json:"device_id"`
	MsgType          int    `json:"msg_type"`
	OccurTime        string `json:"occur_time"`
	PersonID         string `json:"person_id"`
	AttendanceStatus int    `json:"attendance_status"`
}

// ForwardableEvents filters a batch down to successful attendance door
// events. An event qualifies only when the device id, person id and occur
// time are all present, authentication succeeded, and the attendance status
// is check-in or check-out. Everything else is dropped silently.
func ForwardableEvents(events []AccessEvent) []ForwardableEvent {
	var out []ForwardableEvent
	for _, ev := range events {
		fe, ok := ev.forwardable()
		if !ok {
			continue
		}
		out = append(out, fe)
	}
	return out
}

func (e AccessEvent) forwardable() (ForwardableEvent, bool) {
	var fe ForwardableEvent
	if e.BasicInfo == nil || e.BasicInfo.Device == nil {
		return fe, false
	}
	fe.DeviceID = e.BasicInfo.Device.ID
	fe.MsgType = e.BasicInfo.MsgType

	if e.Data == nil || e.Data.OpenDoorInfo == nil || e.Data.OpenDoorInfo.Event == nil {
		return fe, false
	}
	door := e.Data.OpenDoorInfo.Event
	if door.BasicInfo != nil {
		fe.OccurTime = door.BasicInfo.OccurTime
	}
	if door.IntelliInfo == nil {
		return fe, false
	}
	fe.PersonID = door.IntelliInfo.PersonID
	fe.AttendanceStatus = door.IntelliInfo.AttendanceStatus

	if door.IntelliInfo.AuthResult != authResultSuccess {
		return fe, false
	}
	if fe.AttendanceStatus != attendanceCheckIn && fe.AttendanceStatus != attendanceCheckOut {
		return fe, false
	}
	if fe.DeviceID == "" || fe.PersonID == "" || fe.OccurTime == "" {
		return fe, false
	}
	return fe, true
}
