package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/astriaorg/astria-sequencer/app/grpc/sequencer"
	"github.com/astriaorg/astria-sequencer/pkg/sequencerblock"
)

func main() {
	if err := Run(os.Args[1:]); err != nil {
		fmt.Printf("ERROR: %s\n", err.Error())
		os.Exit(1)
	}
}

func Run(args []string) error {
	if len(args) < 3 {
		fmt.Printf("Usage: %s <sequencer_grpc> <from_height> <to_height>\n", os.Args[0])
		return nil
	}
	from, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return err
	}
	to, err := strconv.ParseUint(args[2], 10, 64)
	if err != nil {
		return err
	}
	if from == 0 || to <= from {
		return fmt.Errorf("need 0 < from_height < to_height, got %d and %d", from, to)
	}

	conn, err := grpc.NewClient(args[0], grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer conn.Close()
	client := sequencer.NewClient(conn)

	ctx := context.Background()
	var (
		chainID    string
		blockTimes = make([]time.Time, 0, to-from+1)
		rollupTxs  int
	)
	for height := from; height <= to; height++ {
		raw, err := client.GetSequencerBlock(ctx, height)
		if err != nil {
			return fmt.Errorf("height %d: %w", height, err)
		}
		block, err := sequencerblock.Decode(raw)
		if err != nil {
			return fmt.Errorf("height %d: %w", height, err)
		}
		chainID = block.Header.ChainID
		blockTimes = append(blockTimes, time.Unix(0, block.Header.Time))
		for _, rt := range block.RollupTransactions {
			rollupTxs += len(rt.Transactions)
		}
	}
	avgTime, minTime, maxTime, stdvTime := analyzeBlockTimes(blockTimes)
	fmt.Printf(`
Chain: %s
Block Time (from %d to %d):
	Average: %.2fs
	Min: %.2fs
	Max: %.2fs
	Standard Deviation: %.3fs
Rollup items: %d

`, chainID,
		from,
		to,
		avgTime/1000,
		minTime/1000,
		maxTime/1000,
		stdvTime/1000,
		rollupTxs,
	)
	return nil
}

// analyzeBlockTimes returns the average, min, max, and standard deviation of the block times.
// Units are in milliseconds.
func analyzeBlockTimes(times []time.Time) (float64, float64, float64, float64) {
	numberOfObservations := len(times) - 1
	totalTime := times[numberOfObservations].Sub(times[0])
	averageTime := float64(totalTime.Milliseconds()) / float64(numberOfObservations)
	variance, minTime, maxTime := float64(0), math.Inf(1), float64(0)
	for i := 0; i < numberOfObservations; i++ {
		diff := float64(times[i+1].Sub(times[i]).Milliseconds())
		minTime = math.Min(minTime, diff)
		maxTime = math.Max(maxTime, diff)
		variance += (averageTime - diff) * (averageTime - diff)
	}
	stddev := math.Sqrt(variance / float64(numberOfObservations))
	return averageTime, minTime, maxTime, stddev
}
