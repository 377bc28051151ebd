// Command relaxgan trains a token sequence generator adversarially against a
// learned critic, using MLE, REINFORCE, REBAR or RELAX gradient estimates.
package main

import (
	"flag"
	"io"
	"math/rand"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/timpalpant/go-relax"
	"github.com/timpalpant/go-relax/checkpoint"
	"github.com/timpalpant/go-relax/dataset"
	"github.com/timpalpant/go-relax/ldbstore"
	"github.com/timpalpant/go-relax/nn"
	"github.com/timpalpant/go-relax/rdbstore"
)

type flags struct {
	params relax.Params

	mode         string
	device       string
	dataDir      string
	positiveFile string
	evalFile     string
	negativeFile string
	totalEpochs  float64
	finishEpochs float64
	disHidden    string
	cvHidden     string

	visualize bool
	sink      string
	sinkPath  string
	nSamples  int
}

func parseFlags() flags {
	f := flags{params: relax.DefaultParams()}
	p := &f.params
	flag.Int64Var(&p.Seed, "seed", p.Seed, "Random seed")
	flag.IntVar(&p.BatchSize, "batch_size", p.BatchSize, "Training batch size")
	flag.IntVar(&p.GeneratedNum, "generated_num", p.GeneratedNum, "Sequences generated per evaluation")
	flag.IntVar(&p.SeqLen, "seq_len", p.SeqLen, "Sequence length")
	flag.BoolVar(&p.Spaces, "spaces", p.Spaces, "Whether the vocabulary includes a space token")
	flag.BoolVar(&p.PretrainGenerator, "pretrain", p.PretrainGenerator, "Pretrain the generator instead of loading -weights")
	flag.StringVar(&p.WeightsPath, "weights", p.WeightsPath, "Pretrained generator checkpoint")
	flag.Float64Var(&p.PreEpochGen, "pre_epoch_gen", p.PreEpochGen, "Generator pretraining epochs (may be fractional)")
	flag.IntVar(&p.PreEpochDis, "pre_epoch_dis", p.PreEpochDis, "Discriminator pretraining epochs")
	flag.IntVar(&p.PreIterDis, "pre_iter_dis", p.PreIterDis, "Passes over the data per discriminator pretraining epoch")
	flag.BoolVar(&p.CheckVariance, "check_variance", p.CheckVariance, "Report gradient estimator variance")
	flag.Float64Var(&p.UpdateRate, "update_rate", p.UpdateRate, "Rollout snapshot EMA rate")
	flag.IntVar(&p.RolloutNum, "rollout_num", p.RolloutNum, "Monte-Carlo rollouts per prefix")
	flag.IntVar(&p.GSteps, "g_steps", p.GSteps, "Generator rounds per adversarial batch")
	flag.IntVar(&p.DEpochs, "d_epochs", p.DEpochs, "Discriminator epochs per adversarial batch")
	flag.IntVar(&p.EvalEvery, "eval_every", p.EvalEvery, "Evaluate every this many adversarial batches")
	flag.IntVar(&p.CheckpointEvery, "checkpoint_every", p.CheckpointEvery, "Checkpoint every this many adversarial batches")
	flag.Float64Var(&p.Eta, "eta", p.Eta, "REBAR control variate scale")
	flag.Float64Var(&p.Temperature, "temperature", p.Temperature, "Relaxation temperature")
	flag.Float64Var(&p.GenLearningRate, "gen_lr", p.GenLearningRate, "Generator learning rate")
	flag.Float64Var(&p.DisLearningRate, "dis_lr", p.DisLearningRate, "Discriminator learning rate")
	flag.Float64Var(&p.CVLearningRate, "cv_lr", p.CVLearningRate, "Control variate learning rate")
	flag.IntVar(&p.GenEmbedDim, "gen_embed", p.GenEmbedDim, "Generator embedding size")
	flag.IntVar(&p.GenHiddenDim, "gen_hidden", p.GenHiddenDim, "Generator hidden size")

	flag.StringVar(&f.mode, "mode", p.Mode.String(), "Gradient estimator: MLE, REINFORCE, REBAR or RELAX")
	flag.StringVar(&f.device, "device", "cpu", "Compute device")
	flag.StringVar(&f.dataDir, "data_dir", "data", "Directory of data files")
	flag.StringVar(&f.positiveFile, "positive_file", "", "Ground-truth sequences (default depends on -spaces and -seq_len)")
	flag.StringVar(&f.evalFile, "eval_file", "", "Generated sequences written at each evaluation")
	flag.StringVar(&f.negativeFile, "negative_file", "", "Generated sequences used for discriminator pretraining")
	flag.Float64Var(&f.totalEpochs, "total_epochs", 3, "Adversarial epochs")
	flag.Float64Var(&f.finishEpochs, "finish_mle_epochs", 3, "Additional MLE epochs in MLE mode")
	flag.StringVar(&f.disHidden, "dis_hidden", "64", "Comma-separated critic hidden layer sizes")
	flag.StringVar(&f.cvHidden, "cv_hidden", "64,32", "Comma-separated control variate hidden layer sizes")
	flag.BoolVar(&f.visualize, "visualize", false, "Record training curves in a database")
	flag.StringVar(&f.sink, "sink", "leveldb", "Database for -visualize: leveldb or rocksdb")
	flag.StringVar(&f.sinkPath, "sink_path", "runs.db", "Path of the -visualize database")
	flag.IntVar(&f.nSamples, "samples", 10, "Sequences printed after training")
	flag.Parse()
	return f
}

func (f *flags) resolve() error {
	mode, err := relax.ParseMode(f.mode)
	if err != nil {
		return err
	}

	p := &f.params
	p.Mode = mode
	if p.Spaces {
		p.VocabSize = 6
		p.Alphabet = "012+= "
	}

	if p.DisHidden, err = parseSizes(f.disHidden); err != nil {
		return errors.Wrap(err, "dis_hidden")
	}
	if p.CVHidden, err = parseSizes(f.cvHidden); err != nil {
		return errors.Wrap(err, "cv_hidden")
	}

	p.TotalBatch = p.EpochBatches(f.totalEpochs)
	p.FinishMLESteps = p.EpochBatches(f.finishEpochs)

	suffix := "nospace"
	if p.Spaces {
		suffix = "space"
	}
	if f.positiveFile == "" {
		f.positiveFile = filepath.Join(f.dataDir, "real_"+suffix+"_length_"+strconv.Itoa(p.SeqLen)+".data")
	}
	if f.evalFile == "" {
		f.evalFile = filepath.Join(f.dataDir, "eval_"+mode.String()+".data")
	}
	if f.negativeFile == "" {
		f.negativeFile = filepath.Join(f.dataDir, "generator_sample.data")
	}

	return p.Validate()
}

// selectDevice returns the device to run on. Only the CPU is supported;
// any other request falls back to it.
func selectDevice(requested string) string {
	if requested != "cpu" {
		glog.Warningf("Device %q is unavailable, falling back to cpu", requested)
	}

	return "cpu"
}

// closerFunc adapts a function to io.Closer.
type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}

// newSink opens the -visualize database. The returned closer releases the
// database and any options allocated for it.
func newSink(kind, path, run string) (relax.Observer, io.Closer, error) {
	switch kind {
	case "leveldb":
		sink, err := ldbstore.New(path, &opt.Options{}, run)
		if err != nil {
			return nil, nil, err
		}

		return sink, sink, nil
	case "rocksdb":
		params := rdbstore.DefaultParams(path)
		sink, err := rdbstore.New(params, run)
		if err != nil {
			params.Close()
			return nil, nil, err
		}

		return sink, closerFunc(func() error {
			defer params.Close()
			return sink.Close()
		}), nil
	default:
		return nil, nil, errors.Errorf("unknown sink %q", kind)
	}
}

func main() {
	f := parseFlags()
	err := run(f)
	glog.Flush()
	if err != nil {
		glog.Fatal(err)
	}
}

func run(f flags) error {
	if err := f.resolve(); err != nil {
		return err
	}

	p := f.params
	glog.Infof("Running %v on %s", p.Mode, selectDevice(f.device))

	data, err := dataset.Load(f.positiveFile, p.BatchSize, p.SeqLen, p.VocabSize)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(p.Seed))
	policy := nn.NewRNNPolicy(rng, p.VocabSize, p.GenEmbedDim, p.GenHiddenDim)
	inputDim := p.SeqLen * p.VocabSize
	models := relax.Models{
		Policy:         policy,
		Snapshot:       policy.Clone(),
		Critic:         nn.NewMLPClassifier(rng, inputDim, p.DisHidden...),
		ControlVariate: nn.NewMLPClassifier(rng, inputDim, p.CVHidden...),
	}

	store, err := checkpoint.NewStore(filepath.Join(f.dataDir, "checkpoints"))
	if err != nil {
		return err
	}

	vocab := dataset.NewVocabulary(p.Alphabet)
	eval := dataset.NewEvaluator(vocab, data.Sequences(), f.evalFile, p.Spaces)

	var observers []relax.Observer
	if f.visualize {
		runID := uuid.New().String()
		sink, closer, err := newSink(f.sink, f.sinkPath, runID)
		if err != nil {
			return err
		}
		defer closer.Close()

		glog.Infof("Recording run %s in %s", runID, f.sinkPath)
		observers = append(observers, sink)
	} else {
		observers = append(observers, relax.LogObserver{Verbosity: 1})
	}

	trainer, err := relax.NewTrainer(p, models, data, eval, store, f.negativeFile, observers...)
	if err != nil {
		return err
	}

	if err := trainer.Run(); err != nil {
		return err
	}

	for _, line := range vocab.Strings(trainer.Sample(f.nSamples)) {
		glog.Info(line)
	}

	return nil
}

func parseSizes(s string) ([]int, error) {
	var result []int
	for _, field := range strings.Split(s, ",") {
		if field = strings.TrimSpace(field); field == "" {
			continue
		}

		n, err := strconv.Atoi(field)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}

	return result, nil
}
