package config

import (
	"regexp"
	"strconv"
)

// UserData holds the recognized fields from cloud instance user-data.
// Populated by ParseUserData; nothing merges it into Config.
type UserData struct {
	Server           string
	Location         string
	Key              string
	TimeoutSeconds   int
	Username         string
	Password         string
	ValidCertificate bool
	SchedulerURL     string
	SchedulerSalt    string
	SchedulerNode    string
	FPS              int
}

var userDataTokenPattern = regexp.MustCompile(`(\S+)=(\S*)`)

// ParseUserData parses the whitespace-separated key=value grammar used by
// EC2 user-data and GCE wpt_data: wpt_server|wpt_url, wpt_loc|wpt_location,
// wpt_key, wpt_timeout, wpt_username, wpt_password, wpt_validcertificate,
// wpt_scheduler, wpt_scheduler_salt, wpt_scheduler_node, wpt_fps. Unknown
// keys are ignored.
func ParseUserData(raw string) UserData {
	var ud UserData
	for _, match := range userDataTokenPattern.FindAllStringSubmatch(raw, -1) {
		key, value := match[1], match[2]
		switch key {
		case "wpt_server", "wpt_url":
			ud.Server = value
		case "wpt_loc", "wpt_location":
			ud.Location = value
		case "wpt_key":
			ud.Key = value
		case "wpt_timeout":
			ud.TimeoutSeconds, _ = strconv.Atoi(value)
		case "wpt_username":
			ud.Username = value
		case "wpt_password":
			ud.Password = value
		case "wpt_validcertificate":
			ud.ValidCertificate = value == "1" || value == "true"
		case "wpt_scheduler":
			ud.SchedulerURL = value
		case "wpt_scheduler_salt":
			ud.SchedulerSalt = value
		case "wpt_scheduler_node":
			ud.SchedulerNode = value
		case "wpt_fps":
			ud.FPS, _ = strconv.Atoi(value)
		}
	}
	return ud
}
