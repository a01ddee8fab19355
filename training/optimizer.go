package training

import (
	"fmt"
	"math"
	"sync"

	"wastenet/tensor"
)

// Optimizer interface defines the methods that all optimizers must implement
type Optimizer interface {
	Step() error      // Updates model parameters based on gradients
	ZeroGrad()        // Resets gradients to zero for all parameters
	GetLR() float64   // Gets current learning rate
	SetLR(lr float64) // Sets learning rate
}

// SGD implements Stochastic Gradient Descent with optional momentum and
// weight decay.
type SGD struct {
	parameters   []*tensor.Tensor
	learningRate float64
	momentum     float64
	weightDecay  float64
	velocities   map[*tensor.Tensor]*tensor.Tensor
	mutex        sync.RWMutex
}

// NewSGD creates a new SGD optimizer
func NewSGD(parameters []*tensor.Tensor, lr, momentum, weightDecay float64) *SGD {
	return &SGD{
		parameters:   parameters,
		learningRate: lr,
		momentum:     momentum,
		weightDecay:  weightDecay,
		velocities:   make(map[*tensor.Tensor]*tensor.Tensor),
	}
}

// Step performs a single optimization step
func (sgd *SGD) Step() error {
	sgd.mutex.Lock()
	defer sgd.mutex.Unlock()

	for _, param := range sgd.parameters {
		if !param.RequiresGrad() || param.Grad() == nil {
			continue
		}

		grad := param.Grad()
		if sgd.weightDecay > 0 {
			decayTerm, err := tensor.Scale(param, sgd.weightDecay)
			if err != nil {
				return fmt.Errorf("weight decay multiplication failed: %v", err)
			}
			grad, err = tensor.Add(grad, decayTerm)
			if err != nil {
				return fmt.Errorf("weight decay addition failed: %v", err)
			}
		}

		update := grad
		if sgd.momentum > 0 {
			velocity := sgd.velocities[param]
			if velocity == nil {
				v, err := tensor.Zeros(param.Shape, param.DType)
				if err != nil {
					return fmt.Errorf("velocity initialization failed: %v", err)
				}
				velocity = v
				sgd.velocities[param] = velocity
			}
			momentumTerm, err := tensor.Scale(velocity, sgd.momentum)
			if err != nil {
				return fmt.Errorf("momentum term calculation failed: %v", err)
			}
			newVelocity, err := tensor.Add(momentumTerm, grad)
			if err != nil {
				return fmt.Errorf("velocity update failed: %v", err)
			}
			if err := velocity.SetData(newVelocity.Data); err != nil {
				return fmt.Errorf("velocity data update failed: %v", err)
			}
			update = velocity
		}

		scaled, err := tensor.Scale(update, sgd.learningRate)
		if err != nil {
			return fmt.Errorf("learning rate scaling failed: %v", err)
		}
		newParam, err := tensor.Sub(param, scaled)
		if err != nil {
			return fmt.Errorf("parameter update failed: %v", err)
		}
		if err := param.SetData(newParam.Data); err != nil {
			return fmt.Errorf("parameter data update failed: %v", err)
		}
	}
	return nil
}

// ZeroGrad resets gradients for all parameters
func (sgd *SGD) ZeroGrad() {
	tensor.ZeroGrad(sgd.parameters)
}

func (sgd *SGD) GetLR() float64 {
	sgd.mutex.RLock()
	defer sgd.mutex.RUnlock()
	return sgd.learningRate
}

func (sgd *SGD) SetLR(lr float64) {
	sgd.mutex.Lock()
	defer sgd.mutex.Unlock()
	sgd.learningRate = lr
}

// Adam implements the Adam optimizer with bias-corrected first and second
// moment estimates.
type Adam struct {
	parameters  []*tensor.Tensor
	lr          float64
	beta1       float64
	beta2       float64
	eps         float64
	weightDecay float64
	step        int64
	m           map[*tensor.Tensor]*tensor.Tensor // First moment estimates
	v           map[*tensor.Tensor]*tensor.Tensor // Second moment estimates
	mutex       sync.RWMutex
}

// NewAdam creates a new Adam optimizer. Pass 0 for beta1, beta2, or eps to
// use the standard defaults (0.9, 0.999, 1e-8).
func NewAdam(parameters []*tensor.Tensor, lr, beta1, beta2, eps, weightDecay float64) *Adam {
	if beta1 == 0 {
		beta1 = 0.9
	}
	if beta2 == 0 {
		beta2 = 0.999
	}
	if eps == 0 {
		eps = 1e-8
	}
	return &Adam{
		parameters:  parameters,
		lr:          lr,
		beta1:       beta1,
		beta2:       beta2,
		eps:         eps,
		weightDecay: weightDecay,
		m:           make(map[*tensor.Tensor]*tensor.Tensor),
		v:           make(map[*tensor.Tensor]*tensor.Tensor),
	}
}

// Step performs a single optimization step
func (adam *Adam) Step() error {
	adam.mutex.Lock()
	defer adam.mutex.Unlock()

	adam.step++
	biasCorrection1 := 1.0 - math.Pow(adam.beta1, float64(adam.step))
	biasCorrection2 := 1.0 - math.Pow(adam.beta2, float64(adam.step))

	for _, param := range adam.parameters {
		if !param.RequiresGrad() || param.Grad() == nil {
			continue
		}

		gradData := param.Grad().Float32s()
		if adam.weightDecay > 0 {
			pd := param.Float32s()
			decayed := make([]float32, len(gradData))
			wd := float32(adam.weightDecay)
			for i := range decayed {
				decayed[i] = gradData[i] + wd*pd[i]
			}
			gradData = decayed
		}

		mT := adam.m[param]
		if mT == nil {
			var err error
			mT, err = tensor.Zeros(param.Shape, tensor.Float32)
			if err != nil {
				return fmt.Errorf("first moment initialization failed: %v", err)
			}
			adam.m[param] = mT
		}
		vT := adam.v[param]
		if vT == nil {
			var err error
			vT, err = tensor.Zeros(param.Shape, tensor.Float32)
			if err != nil {
				return fmt.Errorf("second moment initialization failed: %v", err)
			}
			adam.v[param] = vT
		}

		md := mT.Float32s()
		vd := vT.Float32s()
		pd := param.Float32s()
		b1 := float32(adam.beta1)
		b2 := float32(adam.beta2)
		for i := range pd {
			g := gradData[i]
			md[i] = b1*md[i] + (1-b1)*g
			vd[i] = b2*vd[i] + (1-b2)*g*g
			mHat := float64(md[i]) / biasCorrection1
			vHat := float64(vd[i]) / biasCorrection2
			pd[i] -= float32(adam.lr * mHat / (math.Sqrt(vHat) + adam.eps))
		}
	}
	return nil
}

// ZeroGrad resets gradients for all parameters
func (adam *Adam) ZeroGrad() {
	tensor.ZeroGrad(adam.parameters)
}

func (adam *Adam) GetLR() float64 {
	adam.mutex.RLock()
	defer adam.mutex.RUnlock()
	return adam.lr
}

func (adam *Adam) SetLR(lr float64) {
	adam.mutex.Lock()
	defer adam.mutex.Unlock()
	adam.lr = lr
}
