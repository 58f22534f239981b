package main

import (
	"context"
	"time"

	"github.com/trezcool/makazi/core"
	"github.com/trezcool/makazi/core/room"
)

func (cli *commandLine) addRoom(number string, capacity int) error {
	ctx := context.Background()
	number = core.CleanString(number)

	if err := cli.roomRepo.CheckNumberUniqueness(ctx, number); err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err := cli.roomRepo.CreateRoom(ctx, room.Room{
		Number:    number,
		Capacity:  capacity,
		CreatedAt: now,
		UpdatedAt: now,
	})
	return err
}
