package notifier

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"tourguard-safety/internal/models"
)

const maxDeviceLength = 100

// AlertView is the data rendered into the alert e-mail.
type AlertView struct {
	TouristName   string
	DigitalID     string
	EmergencyType string
	Description   string
	TriggeredAt   string
	Latitude      string
	Longitude     string
	MapsURL       string
	Device        string
}

// NewAlertView 构建邮件视图
func NewAlertView(user *models.User, event *models.EmergencyEvent) AlertView {
	lat := event.Position.Latitude
	lon := event.Position.Longitude

	description := event.Description
	if description == "" {
		description = "No description provided"
	}
	device := event.DeviceInfo["user_agent"]
	if device == "" {
		device = "Unknown"
	}
	if len(device) > maxDeviceLength {
		device = device[:maxDeviceLength]
	}

	return AlertView{
		TouristName:   user.Name,
		DigitalID:     user.DigitalID,
		EmergencyType: strings.ToUpper(string(event.EmergencyType)),
		Description:   description,
		TriggeredAt:   event.TriggeredAt.UTC().Format(time.RFC1123),
		Latitude:      fmt.Sprintf("%.6f", lat),
		Longitude:     fmt.Sprintf("%.6f", lon),
		MapsURL:       fmt.Sprintf("https://maps.google.com/?q=%v,%v", lat, lon),
		Device:        device,
	}
}

// Subject 邮件标题
func Subject(user *models.User) string {
	return fmt.Sprintf("URGENT: Emergency Alert for %s - Digital ID: %s", user.Name, user.DigitalID)
}

var htmlAlert = htmltemplate.Must(htmltemplate.New("alert.html").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<style>
body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
.container { max-width: 600px; margin: 0 auto; border: 1px solid #ddd; border-radius: 8px; overflow: hidden; }
.header { background: #0284c7; color: white; padding: 20px; text-align: center; }
.content { padding: 30px; }
.alert-box { background: #fff3cd; border-left: 4px solid #ffc107; padding: 15px; margin: 20px 0; }
.details { background: #f8f9fa; padding: 15px; border-radius: 4px; margin: 15px 0; }
.label { font-weight: bold; color: #495057; }
.button { display: inline-block; background: #667eea; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px; }
.footer { background: #f8f9fa; padding: 15px; text-align: center; font-size: 12px; color: #666; }
</style>
</head>
<body>
<div class="container">
<div class="header"><h2>EMERGENCY ALERT - Tour Guard SOS</h2></div>
<div class="content">
<div class="alert-box"><strong>An emergency alert has been triggered</strong></div>
<h3>Tourist Information</h3>
<div class="details">
<div><span class="label">Name:</span> {{.TouristName}}</div>
<div><span class="label">Digital ID:</span> {{.DigitalID}}</div>
</div>
<h3>Emergency Details</h3>
<div class="details">
<div><span class="label">Emergency Type:</span> {{.EmergencyType}}</div>
<div><span class="label">Description:</span> {{.Description}}</div>
<div><span class="label">Triggered At:</span> {{.TriggeredAt}}</div>
</div>
<h3>Location Information</h3>
<div class="details">
<div><span class="label">Coordinates:</span> {{.Latitude}}, {{.Longitude}}</div>
<div><span class="label">Open in Maps:</span> <a href="{{.MapsURL}}">Click Here</a></div>
</div>
<h3>Device Information</h3>
<div class="details">
<div><span class="label">Device:</span> {{.Device}}</div>
</div>
<a href="{{.MapsURL}}" class="button">View Location on Google Maps</a>
<p style="color: #666; font-size: 14px; margin-top: 30px;">
<strong>Note:</strong> This is an automated emergency alert from Tour Guard.
Please respond immediately and contact local authorities if needed.
</p>
</div>
<div class="footer">
<p>Tour Guard - Tourist Emergency Response System</p>
<p>This is a confidential emergency notification. Do not forward without permission.</p>
</div>
</div>
</body>
</html>
`))

var textAlert = texttemplate.Must(texttemplate.New("alert.txt").Parse(`EMERGENCY ALERT - Tour Guard SOS
==================================================

A tourist has triggered an emergency alert. Please respond immediately.

TOURIST INFORMATION
Name: {{.TouristName}}
Digital ID: {{.DigitalID}}

EMERGENCY DETAILS
Emergency Type: {{.EmergencyType}}
Description: {{.Description}}
Triggered At: {{.TriggeredAt}}

LOCATION INFORMATION
Coordinates: {{.Latitude}}, {{.Longitude}}
Maps Link: {{.MapsURL}}

DEVICE INFORMATION
Device: {{.Device}}

==================================================
This is an automated emergency alert from Tour Guard.
Please respond immediately and contact local authorities if needed.

Tour Guard - Tourist Emergency Response System
This is a confidential emergency notification. Do not forward without permission.
`))

// Render 渲染 HTML 和纯文本邮件
func Render(view AlertView) (html string, text string, err error) {
	var hb, tb bytes.Buffer
	if err := htmlAlert.Execute(&hb, view); err != nil {
		return "", "", fmt.Errorf("failed to render html alert: %w", err)
	}
	if err := textAlert.Execute(&tb, view); err != nil {
		return "", "", fmt.Errorf("failed to render text alert: %w", err)
	}
	return hb.String(), tb.String(), nil
}
