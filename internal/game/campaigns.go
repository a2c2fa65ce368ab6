package game

import (
	"encoding/json"
	"time"

	"lumina/internal/protocol"
)

const oneShotTimeout = 10 * time.Second

// CreateCampaign makes a new campaign over a one-shot connection and returns
// it once the server confirms. The caller then joins normally with NewSession.
func CreateCampaign(name string) (protocol.Campaign, error) {
	var zero protocol.Campaign

	c, err := dialServer(ServerURL, LoadToken())
	if err != nil {
		return zero, err
	}
	defer c.close()

	if err := c.send("CreateCampaign", protocol.CreateCampaign{Name: name}); err != nil {
		return zero, err
	}
	env, err := c.await(oneShotTimeout, "CampaignCreated")
	if err != nil {
		return zero, err
	}
	var cc protocol.CampaignCreated
	if err := json.Unmarshal(env.Data, &cc); err != nil {
		return zero, serverErr(protocol.ErrBackend, "decode confirmation: %v", err)
	}
	return cc.Campaign, nil
}

// JoinByInvite redeems an invite code over a one-shot connection and returns
// the campaign ID that was joined.
func JoinByInvite(code string) (string, error) {
	c, err := dialServer(ServerURL, LoadToken())
	if err != nil {
		return "", err
	}
	defer c.close()

	if err := c.send("AcceptInvite", protocol.AcceptInvite{Code: code}); err != nil {
		return "", err
	}
	env, err := c.await(oneShotTimeout, "InviteAccepted")
	if err != nil {
		return "", err
	}
	var ia protocol.InviteAccepted
	if err := json.Unmarshal(env.Data, &ia); err != nil {
		return "", serverErr(protocol.ErrBackend, "decode confirmation: %v", err)
	}
	return ia.CampaignID, nil
}
